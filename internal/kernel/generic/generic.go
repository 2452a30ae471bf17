// Package generic implements the shared EMV contactless skeleton used by
// the schemes whose kernels differ only in data elements and defaults:
// American Express ExpressPay, Discover, JCB and UnionPay.
package generic

import (
	"context"

	"github.com/mgthompo1/tapkernel/internal/emv/bits"
	"github.com/mgthompo1/tapkernel/internal/kernel"
)

// Profile carries the scheme-specific parameters of a generic kernel.
type Profile struct {
	Scheme    string
	TTQ       bits.TTQ
	TACDenial bits.ActionCode
	TACOnline bits.ActionCode
}

// Profiles for the schemes sharing this skeleton. TTQs request EMV mode
// with online PIN and signature support; TACs force online on expired
// application or failed offline authentication.
var (
	AmexProfile = Profile{
		Scheme:    "amex",
		TTQ:       bits.ParseTTQ([]byte{0x36, 0x00, 0x40, 0x00}),
		TACOnline: bits.ParseActionCode([]byte{0xC8, 0x40, 0x00, 0x00, 0x00}),
	}

	DiscoverProfile = Profile{
		Scheme:    "discover",
		TTQ:       bits.ParseTTQ([]byte{0x36, 0x00, 0x40, 0x00}),
		TACOnline: bits.ParseActionCode([]byte{0xC8, 0x40, 0x00, 0x00, 0x00}),
	}

	JCBProfile = Profile{
		Scheme:    "jcb",
		TTQ:       bits.ParseTTQ([]byte{0x36, 0x00, 0x40, 0x00}),
		TACOnline: bits.ParseActionCode([]byte{0xC8, 0x40, 0x00, 0x00, 0x00}),
	}

	UnionPayProfile = Profile{
		Scheme:    "unionpay",
		TTQ:       bits.ParseTTQ([]byte{0x36, 0x00, 0x40, 0x00}),
		TACOnline: bits.ParseActionCode([]byte{0xC8, 0x40, 0x00, 0x00, 0x00}),
	}
)

// Kernel drives one transaction for a profile-described scheme.
type Kernel struct {
	env     *kernel.Env
	profile Profile
}

// New builds a generic kernel for the given scheme profile.
func New(env *kernel.Env, profile Profile) *Kernel {
	return &Kernel{env: env, profile: profile}
}

// Name implements kernel.Kernel.
func (k *Kernel) Name() string { return k.profile.Scheme }

// ProcessTransaction implements kernel.Kernel.
func (k *Kernel) ProcessTransaction(ctx context.Context, app kernel.SelectedApplication, params kernel.Params) kernel.Outcome {
	eng := kernel.NewEngine(k.env, app, params)
	return eng.RunStandard(ctx, kernel.FlowConfig{
		Scheme:    k.profile.Scheme,
		TTQ:       k.profile.TTQ,
		TACDenial: k.profile.TACDenial,
		TACOnline: k.profile.TACOnline,
	})
}
