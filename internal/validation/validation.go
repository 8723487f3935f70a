// Package validation содержит функции валидации входных данных.
package validation

const (
	maxLoginLength     = 64
	maxReferenceLength = 128
)

// IsValidLogin проверяет корректность логина: непустая строка разумной длины
// из латинских букв, цифр и символов '.', '_', '-', '@'.
func IsValidLogin(login string) bool {
	if login == "" || len(login) > maxLoginLength {
		return false
	}

	for _, ch := range login {
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '.' || ch == '_' || ch == '-' || ch == '@':
		default:
			return false
		}
	}

	return true
}

// IsValidReference проверяет корректность ссылки на вызвавшую запись:
// непустой идентификатор разумной длины без пробельных и управляющих символов.
// Ссылка входит в ключ идемпотентности журнала, поэтому её формат фиксирован.
func IsValidReference(reference string) bool {
	if reference == "" || len(reference) > maxReferenceLength {
		return false
	}

	for _, ch := range reference {
		if ch <= ' ' || ch > '~' {
			return false
		}
	}

	return true
}
