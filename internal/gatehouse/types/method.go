package types

// MethodCode identifies one of the nine supported authentication
// modalities. The codes are part of the device wire contract and of the
// audit log, so they must stay stable.
type MethodCode int

const (
	MethodPassword    MethodCode = 1
	MethodCard        MethodCode = 2
	MethodQRCode      MethodCode = 3
	MethodNFC         MethodCode = 4
	MethodFace        MethodCode = 11
	MethodFingerprint MethodCode = 12
	MethodPalm        MethodCode = 13
	MethodIris        MethodCode = 14
	MethodVoice       MethodCode = 15
)

var methodNames = map[MethodCode]string{
	MethodPassword:    "password",
	MethodCard:        "card",
	MethodQRCode:      "qr_code",
	MethodNFC:         "nfc",
	MethodFace:        "face",
	MethodFingerprint: "fingerprint",
	MethodPalm:        "palm",
	MethodIris:        "iris",
	MethodVoice:       "voice",
}

// Methods returns all supported method codes in ascending code order.
func Methods() []MethodCode {
	return []MethodCode{
		MethodPassword, MethodCard, MethodQRCode, MethodNFC,
		MethodFace, MethodFingerprint, MethodPalm, MethodIris, MethodVoice,
	}
}

// Name returns the stable label used for audit records and metrics.
// Unknown codes report as "unknown" rather than failing; validity is the
// registry's concern, not the label's.
func (m MethodCode) Name() string {
	if n, ok := methodNames[m]; ok {
		return n
	}
	return "unknown"
}

// Biometric reports whether the modality relies on a physiological
// template (face, fingerprint, palm, iris, voice).
func (m MethodCode) Biometric() bool {
	return m >= MethodFace && m <= MethodVoice
}
