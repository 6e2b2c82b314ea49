/*
Package busgate documents the Busgate module.

This module is CLI-first and ships the busgate command:

	go install github.com/nuetzliches/busgate/cmd/busgate@latest

Most implementation packages in this repository are internal and are not a
stable public Go API.
*/
package busgate
