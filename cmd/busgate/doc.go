// Command busgate runs the Busgate Service Bus gateway.
//
// Busgate exposes Azure Service Bus administration and messaging operations
// over a stateless HTTP API. Every request carries its own connection
// descriptor; the gateway opens a broker session per operation and never
// pools connections.
//
// Install:
//
//	go install github.com/nuetzliches/busgate/cmd/busgate@latest
//
// Usage:
//
//	busgate run --config ./Busgatefile
package main
