package interpolate_test

import (
	"testing"

	"github.com/aretw0/parley/pkg/interpolate"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	vars := map[string]string{"nome": "Maria", "pedido.id": "42", "vazio": ""}

	tests := []struct {
		name           string
		text           string
		want           string
		wantUnresolved []string
	}{
		{"Plain Text", "Olá!", "Olá!", nil},
		{"Single Variable", "Prazer, {nome}!", "Prazer, Maria!", nil},
		{"Dotted Name", "Pedido #{pedido.id}", "Pedido #42", nil},
		{"Empty Value", "[{vazio}]", "[]", nil},
		{"Unresolved Kept Verbatim", "Oi {apelido}, {nome}", "Oi {apelido}, Maria", []string{"apelido"}},
		{"Unresolved Reported Once", "{x} {x} {y}", "{x} {x} {y}", []string{"x", "y"}},
		{"Escaped Braces", "{{nome}} = {nome}", "{nome} = Maria", nil},
		{"Not A Placeholder", "a { b } c", "a { b } c", nil},
		{"Unclosed Brace", "fim {nome", "fim {nome", nil},
		{"Stray Closing Brace", "ok }", "ok }", nil},
		{"Unicode Name", "{cidade_ção}", "{cidade_ção}", []string{"cidade_ção"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, unresolved := interpolate.Render(tt.text, vars)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantUnresolved, unresolved)
		})
	}
}

func TestRender_NilVars(t *testing.T) {
	got, unresolved := interpolate.Render("Oi {nome}", nil)
	assert.Equal(t, "Oi {nome}", got)
	assert.Equal(t, []string{"nome"}, unresolved)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, interpolate.Placeholders("{a} and {b} and {{c}}"))
	assert.Nil(t, interpolate.Placeholders("none"))
}
