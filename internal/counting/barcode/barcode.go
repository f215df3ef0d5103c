// Package barcode normalizes, classifies and checksum-validates retail
// barcodes (UPC-A, UPC-E, EAN-8, EAN-13) ahead of any catalog lookup.
package barcode

import (
	"errors"
	"strings"
)

// Format identifies a recognized barcode symbology
type Format string

const (
	FormatUPCE    Format = "upce"
	FormatEAN8    Format = "ean8"
	FormatUPCA    Format = "upca"
	FormatEAN13   Format = "ean13"
	FormatUnknown Format = "unknown"
)

var (
	// ErrInvalidFormat is returned when the digit count matches no known symbology
	ErrInvalidFormat = errors.New("barcode: unrecognized format")
	// ErrChecksumMismatch is returned when the check digit does not verify
	ErrChecksumMismatch = errors.New("barcode: checksum mismatch")
)

// Barcode is a validated, normalized barcode
type Barcode struct {
	// Code is the cleaned code, zero-padded to canonical length for UPC-A
	Code string `json:"code"`
	// Format is the detected symbology
	Format Format `json:"format"`
	// ChecksumValid reports whether the check digit verified.
	// UPC-E carries no check digit in its 6-digit form and always verifies.
	ChecksumValid bool `json:"checksum_valid"`
}

// Clean strips everything but digits from raw scanner input.
// Cleaning is idempotent: Clean(Clean(s)) == Clean(s).
func Clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Classify maps a cleaned digit string to a symbology by length.
// 11 digits is a UPC-A whose leading zero was truncated upstream.
func Classify(code string) Format {
	switch len(code) {
	case 6:
		return FormatUPCE
	case 8:
		return FormatEAN8
	case 11, 12:
		return FormatUPCA
	case 13:
		return FormatEAN13
	default:
		return FormatUnknown
	}
}

// Validate cleans, classifies and checksum-verifies raw scanner input.
// An 11-digit UPC-A is zero-padded to 12 before verification.
// Returns ErrInvalidFormat for unrecognized lengths and ErrChecksumMismatch
// when the check digit does not verify; on checksum mismatch the returned
// Barcode still carries the cleaned code with ChecksumValid=false.
func Validate(raw string) (*Barcode, error) {
	code := Clean(raw)
	format := Classify(code)
	if format == FormatUnknown {
		return nil, ErrInvalidFormat
	}

	// Historic truncation: a leading-zero UPC-A often loses its first digit
	if format == FormatUPCA && len(code) == 11 {
		code = "0" + code
	}

	b := &Barcode{Code: code, Format: format}

	if format == FormatUPCE {
		// 6-digit UPC-E has no embedded check digit; verified via expansion
		// only when the expanded UPC-A is actually used for lookup
		b.ChecksumValid = true
		return b, nil
	}

	if !checksumOK(code) {
		b.ChecksumValid = false
		return b, ErrChecksumMismatch
	}

	b.ChecksumValid = true
	return b, nil
}

// checksumOK verifies the trailing check digit using the GS1 weighted
// mod-10 scheme: digits right-to-left (excluding the check digit) alternate
// weights 3,1,3,1...
func checksumOK(code string) bool {
	n := len(code)
	if n < 2 {
		return false
	}

	sum := 0
	weight := 3
	for i := n - 2; i >= 0; i-- {
		sum += int(code[i]-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}

	check := (10 - sum%10) % 10
	return check == int(code[n-1]-'0')
}

// CheckDigit computes the GS1 check digit for a code body (without the
// check digit).
func CheckDigit(body string) int {
	sum := 0
	weight := 3
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}
	return (10 - sum%10) % 10
}

// ExpandUPCE expands a 6-digit UPC-E code to its 12-digit UPC-A equivalent
// (number system 0), computing the check digit.
func ExpandUPCE(code string) (string, error) {
	if len(code) != 6 {
		return "", ErrInvalidFormat
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return "", ErrInvalidFormat
		}
	}

	var body string
	switch code[5] {
	case '0', '1', '2':
		body = "0" + code[0:2] + string(code[5]) + "0000" + code[2:5]
	case '3':
		body = "0" + code[0:3] + "00000" + code[3:5]
	case '4':
		body = "0" + code[0:4] + "00000" + code[4:5]
	default:
		body = "0" + code[0:5] + "0000" + string(code[5])
	}

	check := CheckDigit(body)
	return body + string(rune('0'+check)), nil
}

// Alternatives returns equivalent representations of a validated barcode:
// the zero-prefixed EAN-13 form of a UPC-A, the UPC-A form of a
// zero-leading EAN-13, and the UPC-A expansion of a UPC-E.
// The barcode's own code is never included.
func Alternatives(b *Barcode) []string {
	if b == nil {
		return nil
	}

	switch b.Format {
	case FormatUPCA:
		return []string{"0" + b.Code}
	case FormatEAN13:
		if strings.HasPrefix(b.Code, "0") {
			return []string{b.Code[1:]}
		}
	case FormatUPCE:
		if expanded, err := ExpandUPCE(b.Code); err == nil {
			return []string{expanded, "0" + expanded}
		}
	}
	return nil
}
