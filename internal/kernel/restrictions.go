package kernel

import (
	"bytes"
	"time"

	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
)

// ResolveYear maps a two-digit year through the 80-year sliding window:
// yy >= 80 with a current yy below 80 falls into the previous century,
// yy < 20 with a current yy of 80 or above into the next.
func ResolveYear(yy int, now time.Time) int {
	currentYear := now.Year()
	currentYY := currentYear % 100
	century := currentYear - currentYY

	switch {
	case yy >= 80 && currentYY < 80:
		century -= 100
	case yy < 20 && currentYY >= 80:
		century += 100
	}
	return century + yy
}

// parseCardDate decodes a BCD YYMMDD date element.
func parseCardDate(b []byte, now time.Time) (time.Time, bool) {
	if len(b) != 3 {
		return time.Time{}, false
	}
	digits, err := bytesutil.BCDDecode(b)
	if err != nil {
		return time.Time{}, false
	}
	yy := int(digits[0]-'0')*10 + int(digits[1]-'0')
	month := int(digits[2]-'0')*10 + int(digits[3]-'0')
	day := int(digits[4]-'0')*10 + int(digits[5]-'0')
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(ResolveYear(yy, now), time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// CheckRestrictions verifies application version, effective and
// expiration dates and application usage control. Failures set TVR bits;
// processing always continues.
func (e *Engine) CheckRestrictions() {
	now := e.params.TransactionDate

	if cardVersion, ok := e.env.Card.Get(tag.ApplicationVersion); ok {
		if termVersion, ok := e.env.Terminal.Get(tag.TerminalVersion); ok && !bytes.Equal(cardVersion, termVersion) {
			e.env.TVR.SetApplicationVersionsDiffer()
		}
	}

	if effective, ok := e.env.Card.Get(tag.EffectiveDate); ok {
		if date, valid := parseCardDate(effective, now); valid && now.Before(date) {
			e.env.TVR.SetApplicationNotYetEffective()
		}
	}

	if expiry, ok := e.env.Card.Get(tag.ExpirationDate); ok {
		if date, valid := parseCardDate(expiry, now); valid {
			// the application stays valid through the expiry day
			if now.After(date.Add(24*time.Hour - time.Nanosecond)) {
				e.env.TVR.SetExpiredApplication()
			}
		}
	}

	e.checkUsageControl()
	e.syncTVR()
}

// AUC byte 1 flags
const (
	aucDomesticCash         = 0x80
	aucInternationalCash    = 0x40
	aucDomesticGoods        = 0x20
	aucInternationalGoods   = 0x10
	aucDomesticServices     = 0x08
	aucInternationalService = 0x04
	aucATMs                 = 0x02
	aucNonATMs              = 0x01
)

func (e *Engine) checkUsageControl() {
	auc, ok := e.env.Card.Get(tag.AUC)
	if !ok || len(auc) < 1 {
		return
	}

	if e.isATM() {
		if auc[0]&aucATMs == 0 {
			e.env.TVR.SetServiceNotAllowed()
		}
		return
	}
	if auc[0]&aucNonATMs == 0 {
		e.env.TVR.SetServiceNotAllowed()
		return
	}

	issuerCountry, ok := e.env.Card.Get(tag.IssuerCountryCode)
	if !ok {
		return
	}
	terminalCountry, _ := e.env.Terminal.Get(tag.TerminalCountryCode)
	domestic := bytes.Equal(issuerCountry, terminalCountry)

	if domestic {
		if auc[0]&(aucDomesticGoods|aucDomesticServices) == 0 {
			e.env.TVR.SetServiceNotAllowed()
		}
	} else {
		if auc[0]&(aucInternationalGoods|aucInternationalService) == 0 {
			e.env.TVR.SetServiceNotAllowed()
		}
	}
}

// ATM terminal types per EMV Book 4
func (e *Engine) isATM() bool {
	ttype, ok := e.env.Terminal.Get(tag.TerminalType)
	if !ok || len(ttype) == 0 {
		return false
	}
	return ttype[0] == 0x14 || ttype[0] == 0x15 || ttype[0] == 0x16
}
