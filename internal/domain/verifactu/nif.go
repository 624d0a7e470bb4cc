package verifactu

import (
	"regexp"
	"strconv"
	"strings"
)

// Letras de control del NIF/NIE (orden oficial).
const nifLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

var (
	dniPattern = regexp.MustCompile(`^\d{8}[A-Z]$`)
	niePattern = regexp.MustCompile(`^[XYZ]\d{7}[A-Z]$`)
	cifPattern = regexp.MustCompile(`^[ABCDEFGHJNPQRSUVW]\d{7}[0-9A-J]$`)
)

// IsValidNIF valida la forma y la letra de control de un NIF, NIE o CIF
// español. Para CIF solo se valida la forma (el dígito de control depende
// del tipo de entidad y la AEAT lo revalida en destino).
func IsValidNIF(nif string) bool {
	s := strings.ToUpper(strings.TrimSpace(nif))
	switch {
	case dniPattern.MatchString(s):
		n, _ := strconv.Atoi(s[:8])
		return s[8] == nifLetters[n%23]
	case niePattern.MatchString(s):
		// X/Y/Z se sustituyen por 0/1/2 para el cálculo de la letra.
		digit := strings.IndexByte("XYZ", s[0])
		n, _ := strconv.Atoi(strconv.Itoa(digit) + s[1:8])
		return s[8] == nifLetters[n%23]
	case cifPattern.MatchString(s):
		return true
	default:
		return false
	}
}
