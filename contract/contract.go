//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"

	"chat-relay/protocol"
)

// EventSink is one live connection's delivery channel. Deliver must not
// block the orchestrator indefinitely; implementations buffer or drop.
type EventSink interface {
	Deliver(ctx context.Context, event protocol.ServerEvent) error
}

// Worker is a long-running background task driven by the supervisor.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
}
