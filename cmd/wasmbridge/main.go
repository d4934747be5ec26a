// Command wasmbridge loads core WebAssembly modules and calls their exported
// functions from the command line, a script, a REPL or a terminal UI.
package main

func main() {
	Execute()
}
