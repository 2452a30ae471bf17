package mocks

import (
	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/config"
	"github.com/mgthompo1/tapkernel/internal/emv/apdu"
	"github.com/mgthompo1/tapkernel/internal/emv/bits"
	"github.com/mgthompo1/tapkernel/internal/emv/datastore"
	"github.com/mgthompo1/tapkernel/internal/emv/sensitive"
	"github.com/mgthompo1/tapkernel/internal/kernel"
)

// KernelConfig is the deterministic terminal profile used by tests:
// random online selection disabled, generous contactless limit.
func KernelConfig() config.KernelConfig {
	return config.KernelConfig{
		CountryCode:      "0840",
		CurrencyCode:     "0840",
		TerminalType:     "22",
		Capabilities:     "E0F8C8",
		MerchantID:       "TAPKERNEL MERCHANT",
		TerminalID:       "TERM0001",
		FloorLimit:       500000,
		ContactlessLimit: 1000000,
		CVMRequiredLimit: 1000,
		OnlinePercent:    0,
	}
}

// Env assembles a kernel environment over a scripted card with
// everything else stubbed deterministic.
func Env(card *Card) *kernel.Env {
	return &kernel.Env{
		Logger:     zap.NewNop(),
		Exchanger:  apdu.NewExchanger(card),
		Terminal:   datastore.New(),
		Card:       datastore.New(),
		TVR:        &bits.TVR{},
		TSI:        &bits.TSI{},
		Registry:   sensitive.NewRegistry(),
		Config:     KernelConfig(),
		ODA:        Succeeding(),
		CAKeys:     &CAKeys{},
		ScriptAuth: &ScriptAuth{},
		Clock:      &Clock{},
		RNG:        &RNG{},
	}
}
