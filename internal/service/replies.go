package service

import (
	"fmt"
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

const (
	replyRegister      = "Olá! Para usar o TrackyFinance, você precisa se registrar primeiro em nosso site. 🚀"
	replyNotUnderstood = "Desculpe, não consegui entender sua mensagem. Tente enviar algo como: \"Gastei R$50 no almoço\" 🤔"
	replyNoAmount      = "Não consegui identificar o valor do gasto. Tente algo como: \"Gastei R$50 no almoço\" 💰"
	replyTryAgain      = "Não consegui processar sua mensagem agora. Tente novamente em alguns instantes. ⏳"
	replySaveFailed    = "Ops! Houve um erro ao salvar seu gasto. Tente novamente mais tarde. 😕"
)

// Arguments: amount, description, category.
var confirmationTemplates = []string{
	"Anotado! R$ %[1]s em %[3]s - %[2]s 📝",
	"Pronto! Registrei R$ %[1]s para %[2]s na categoria %[3]s ✅",
	"Feito! %[2]s por R$ %[1]s já está no seu dashboard 💰",
	"Salvei! R$ %[1]s - %[2]s (%[3]s) ✨",
}

// TemplatePicker returns an index in [0, n).
type TemplatePicker func(n int) int

// RandomPicker picks uniformly at random.
func RandomPicker(n int) int {
	return rand.IntN(n)
}

func confirmation(pick TemplatePicker, amount decimal.Decimal, description, category string) string {
	i := pick(len(confirmationTemplates))
	if i < 0 || i >= len(confirmationTemplates) {
		i = 0
	}
	return fmt.Sprintf(confirmationTemplates[i], amount.StringFixed(2), description, category)
}
