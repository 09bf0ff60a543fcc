/*
Package dsl provides a fluent Go builder for flow graphs.

It is an alternative to YAML or JSON documents for flows generated in code and for tests.
Build validates the graph exactly as publishing does.

Example usage:

	b := dsl.New("atendimento")
	b.Add("hello").Message("Olá! Bem-vindo.").Go("name").
		Add("name").Question("Qual é o seu nome?", "nome").Go("menu").
		Add("menu").Menu("{nome}, como posso ajudar?", "Vendas", "Suporte").
		On("Vendas", "sales").
		On("Suporte", "bye").
		Add("sales").Transfer(domain.TargetSector, "vendas", "Um atendente já vai falar com você.").
		Add("bye").End("Até logo!")

	g, err := b.Build()
*/
package dsl
