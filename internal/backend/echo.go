package backend

import "context"

// EchoBackend returns every payload unchanged. Useful for dry runs.
type EchoBackend struct{}

// NewEchoBackend creates an echo backend.
func NewEchoBackend() *EchoBackend { return &EchoBackend{} }

func (b *EchoBackend) Send(ctx context.Context, msg Message) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{Error: err.Error()}, err
	}
	return Response{Content: msg.Payload}, nil
}

func (b *EchoBackend) Close() error { return nil }
