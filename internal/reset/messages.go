package reset

import "fmt"

// Messages is the user-facing text of the page
type Messages struct {
	Mismatch string
	// TooShort is a format string receiving the minimum length
	TooShort     string
	Success      string
	UpdateFailed string
	Unknown      string
}

// PortugueseMessages is the default (pt-BR) catalogue
var PortugueseMessages = Messages{
	Mismatch:     "As senhas não coincidem",
	TooShort:     "A senha deve ter pelo menos %d caracteres",
	Success:      "Senha atualizada com sucesso!",
	UpdateFailed: "Erro ao atualizar senha",
	Unknown:      "Erro desconhecido ao atualizar senha",
}

func (m Messages) tooShort(min int) string {
	return fmt.Sprintf(m.TooShort, min)
}
