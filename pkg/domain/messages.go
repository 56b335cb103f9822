package domain

// Command representa uma intenção de alterar estado.
type Command[T any] interface {
	CommandName() string
	Payload() T
}

// Query representa uma consulta no sistema.
type Query[T any] interface {
	QueryName() string
	Payload() T
}

// Event representa um fato já ocorrido no sistema.
type Event[T any] interface {
	EventName() string
	Payload() T
}

// IDGenerator produces identifiers for locally created entities.
type IDGenerator[T comparable] func() T
