package dsl_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
)

func signupFlow() *dsl.Builder {
	b := dsl.New("signup").Version(1)
	b.Add("hello").Message("Olá").Go("ask").
		Add("ask").Question("Como você se chama?", "nome").Go("menu").
		Add("menu").Menu("Tudo certo?", "Sim", "Não").On("Sim", "bye").On("Não", "ask").
		Add("bye").End("Tchau {nome}")
	return b
}

// ExampleBuilder builds a flow in code and drives a conversation through it
// with the engine directly, without any store or channel.
func ExampleBuilder() {
	g, err := signupFlow().Build()
	if err != nil {
		log.Fatal(err)
	}

	engine := runtime.NewEngine()
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	s := domain.NewSession(g.FlowID, g.Version, "5511999", now)

	for _, reply := range []string{"oi", "Ana", "Sim"} {
		next, actions, err := engine.Step(context.Background(), g, s, domain.UserReply(reply, now))
		if err != nil {
			log.Fatal(err)
		}
		for _, a := range actions {
			if a.Content != nil {
				fmt.Println(a.Content.Text)
			}
		}
		s = next
	}
	fmt.Println(s.Status)

	// Output:
	// Olá
	// Como você se chama?
	// Tudo certo?
	// Tchau Ana
	// ended
}

// ExampleBuilder_mermaid renders a built flow as a Mermaid flowchart.
func ExampleBuilder_mermaid() {
	g, err := signupFlow().Build()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(graph.GenerateMermaid(g, nil))

	// Output:
	// graph TD
	//     ask[/"ask <br/> → {nome}"/]
	//     bye(["bye"])
	//     hello(("hello"))
	//     menu[/"menu"/]
	//     hello --> ask
	//     ask --> menu
	//     menu -- "Sim" --> bye
	//     menu -- "Não" --> ask
}
