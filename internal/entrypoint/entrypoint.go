// Package entrypoint performs contactless application selection: PPSE
// discovery, candidate ordering by priority and kernel dispatch keyed on
// the AID's registered identifier.
package entrypoint

import (
	"bytes"
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/internal/emv/apdu"
	"github.com/mgthompo1/tapkernel/internal/emv/dol"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/internal/kernel"
	"github.com/mgthompo1/tapkernel/internal/kernel/generic"
	"github.com/mgthompo1/tapkernel/internal/kernel/mastercard"
	"github.com/mgthompo1/tapkernel/internal/kernel/visa"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/pkg/errors"
	"github.com/mgthompo1/tapkernel/pkg/tlv"
)

// ppseName is the proximity payment system environment DDF.
var ppseName = []byte("2PAY.SYS.DDF01")

// Factory builds a kernel over a per-transaction environment.
type Factory func(env *kernel.Env) kernel.Kernel

// registration binds a RID prefix to its kernel factory.
type registration struct {
	rid     []byte
	factory Factory
}

// Registry maps registered identifiers to kernels.
type Registry struct {
	entries []registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register binds a 5-byte RID to a kernel factory.
func (r *Registry) Register(rid []byte, factory Factory) {
	r.entries = append(r.entries, registration{rid: bytesutil.Clone(rid), factory: factory})
}

// Resolve finds the kernel factory for an AID by RID prefix.
func (r *Registry) Resolve(aid []byte) (Factory, bool) {
	if len(aid) < 5 {
		return nil, false
	}
	for _, entry := range r.entries {
		if bytes.Equal(aid[:5], entry.rid) {
			return entry.factory, true
		}
	}
	return nil, false
}

// DefaultRegistry wires the scheme kernels to their registered
// identifiers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(bytesutil.MustHex("A000000003"), func(env *kernel.Env) kernel.Kernel { return visa.New(env) })
	r.Register(bytesutil.MustHex("A000000004"), func(env *kernel.Env) kernel.Kernel { return mastercard.New(env) })
	r.Register(bytesutil.MustHex("A000000025"), func(env *kernel.Env) kernel.Kernel { return generic.New(env, generic.AmexProfile) })
	r.Register(bytesutil.MustHex("A000000152"), func(env *kernel.Env) kernel.Kernel { return generic.New(env, generic.DiscoverProfile) })
	r.Register(bytesutil.MustHex("A000000065"), func(env *kernel.Env) kernel.Kernel { return generic.New(env, generic.JCBProfile) })
	r.Register(bytesutil.MustHex("A000000333"), func(env *kernel.Env) kernel.Kernel { return generic.New(env, generic.UnionPayProfile) })
	return r
}

// Candidate is one application advertised in the PPSE directory.
type Candidate struct {
	AID      []byte
	Label    string
	Priority byte
}

// EntryPoint selects the application to process.
type EntryPoint struct {
	registry *Registry
	logger   *zap.Logger
}

// New builds an entry point over a kernel registry.
func New(registry *Registry, logger *zap.Logger) *EntryPoint {
	return &EntryPoint{registry: registry, logger: logger}
}

// Selection is the application the entry point settled on, with the
// factory for the kernel that will process it.
type Selection struct {
	Application kernel.SelectedApplication
	Factory     Factory
}

// Select discovers the PPSE, orders candidates by priority and selects
// the first application backed by a registered kernel.
func (ep *EntryPoint) Select(ctx context.Context, ex *apdu.Exchanger) (*Selection, error) {
	candidates, err := ep.discover(ctx, ex)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		factory, ok := ep.registry.Resolve(candidate.AID)
		if !ok {
			continue
		}

		fci, err := ep.selectAID(ctx, ex, candidate.AID)
		if err != nil {
			ep.logger.Debug("candidate select failed",
				zap.String("aid", bytesutil.ToHex(candidate.AID)),
				zap.Error(err),
			)
			continue
		}

		app := kernel.SelectedApplication{
			AID:      candidate.AID,
			Label:    candidate.Label,
			Priority: candidate.Priority,
			FCI:      fci,
		}
		// a directory entry without a label falls back to the FCI's tag 50
		if app.Label == "" {
			if labelTLV, ok := tlv.Find(fci, tag.ApplicationLabel); ok {
				app.Label = string(labelTLV.Value)
			}
		}
		if pdolTLV, ok := tlv.Find(fci, tag.PDOL); ok {
			pdol, err := dol.Parse(pdolTLV.Value)
			if err != nil {
				return nil, err
			}
			app.PDOL = pdol
		}
		return &Selection{Application: app, Factory: factory}, nil
	}

	return nil, errors.ErrMissingMandatoryData.WithMessage("no mutually supported application")
}

// discover reads the PPSE directory and returns candidates ordered by
// priority, 1 being the highest; absent priority sorts last.
func (ep *EntryPoint) discover(ctx context.Context, ex *apdu.Exchanger) ([]Candidate, error) {
	resp, err := ex.Exchange(ctx, apdu.Case4(apdu.ClaInterindustry, apdu.InsSelect, 0x04, 0x00, ppseName, 0x00))
	if err != nil {
		return nil, err
	}
	if disp := apdu.Classify(resp.SW()); disp != apdu.Success && disp != apdu.Warning {
		return nil, apdu.ErrorForSW(resp.SW())
	}

	var candidates []Candidate
	collectDirectoryEntries(resp.Data, &candidates)
	if len(candidates) == 0 {
		return nil, errors.MissingMandatoryData(uint32(tag.ADFName))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return sortPriority(candidates[i].Priority) < sortPriority(candidates[j].Priority)
	})
	return candidates, nil
}

func sortPriority(p byte) int {
	if p == 0 {
		return 16
	}
	return int(p & 0x0F)
}

// collectDirectoryEntries walks the FCI for 61 templates carrying 4F.
func collectDirectoryEntries(data []byte, out *[]Candidate) {
	objects, err := tlv.Parse(data)
	if err != nil {
		return
	}
	for _, obj := range objects {
		if obj.Tag == 0x61 {
			children, err := obj.Children()
			if err != nil {
				continue
			}
			candidate := Candidate{}
			for _, child := range children {
				switch child.Tag {
				case tag.ADFName:
					candidate.AID = child.Value
				case tag.ApplicationLabel:
					candidate.Label = string(child.Value)
				case tag.ApplicationPriority:
					if len(child.Value) > 0 {
						candidate.Priority = child.Value[0]
					}
				}
			}
			if len(candidate.AID) >= 5 {
				*out = append(*out, candidate)
			}
			continue
		}
		if obj.Tag.Constructed() {
			collectDirectoryEntries(obj.Value, out)
		}
	}
}

// selectAID issues SELECT for one candidate and returns its FCI.
func (ep *EntryPoint) selectAID(ctx context.Context, ex *apdu.Exchanger, aid []byte) ([]byte, error) {
	resp, err := ex.Exchange(ctx, apdu.Case4(apdu.ClaInterindustry, apdu.InsSelect, 0x04, 0x00, aid, 0x00))
	if err != nil {
		return nil, err
	}
	if disp := apdu.Classify(resp.SW()); disp != apdu.Success && disp != apdu.Warning {
		return nil, apdu.ErrorForSW(resp.SW())
	}
	return resp.Data, nil
}
