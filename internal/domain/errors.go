package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound           = errors.New("recurso no encontrado")
	ErrTenantNotFound     = errors.New("tenant sin configuración VeriFactu")
	ErrInvalidInput       = errors.New("entrada inválida")
	ErrDuplicate          = errors.New("recurso duplicado")
	ErrUnauthorized       = errors.New("no autorizado")
	ErrForbidden          = errors.New("acceso denegado")
	ErrChainConflict      = errors.New("conflicto de cadena: otro registro avanzó la huella del tenant")
	ErrImmutableField     = errors.New("intento de mutar un campo sellado del registro")
	ErrInvalidTarget      = errors.New("el registro no admite anulación")
	ErrBatchNotRetryable  = errors.New("solo los lotes en error o error parcial admiten reintento")
	ErrRetryLimitExceeded = errors.New("límite de reintentos del lote agotado")
	ErrNoCertificate      = errors.New("el tenant no tiene certificado configurado")
	ErrInvalidCertificate = errors.New("el certificado del tenant no es válido")
)
