// Package main is the entry point for schemagate.
//
//	@title			schemagate API
//	@version		1.0
//	@description	Read-only access to the live schema snapshot, its generated bindings and the published history.
//
//	@contact.name	schemagate maintainers
//	@contact.url	https://github.com/artpar/schemagate/issues
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host			localhost:8080
//	@BasePath		/
package main

func main() {
	Execute()
}
