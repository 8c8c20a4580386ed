package extract

import (
	"regexp"
	"strings"
)

var (
	// sizeParamRE matches the ESMTP SIZE parameter some agents leave on MAIL FROM.
	sizeParamRE = regexp.MustCompile(`(?i)(?:^|\s+)SIZE=\d+$`)
	angleAddrRE = regexp.MustCompile(`<([^<>]*)>`)
	emailAddrRE = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// NormalizeSender reduces a From header or envelope sender to a bare address.  In order: empty
// input yields "", a trailing SIZE=n is dropped, an angle-bracketed address is unwrapped, an
// address-looking substring is extracted, and anything else is returned trimmed.  Steps are
// repeated until the value stops changing, so NormalizeSender(NormalizeSender(s)) ==
// NormalizeSender(s) always holds.
func NormalizeSender(raw string) string {
	s := raw
	for {
		next := normalizeSenderOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

// NormalizeSenderPtr normalizes a nullable sender; nil yields "".
func NormalizeSenderPtr(raw *string) string {
	if raw == nil {
		return ""
	}
	return NormalizeSender(*raw)
}

// normalizeSenderOnce returns either s or a strictly shorter string.
func normalizeSenderOnce(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.TrimSpace(sizeParamRE.ReplaceAllString(s, ""))
	if m := angleAddrRE.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.Contains(s, "@") {
		if addr := emailAddrRE.FindString(s); addr != "" {
			return addr
		}
	}
	return s
}
