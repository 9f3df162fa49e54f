// Command importctl runs imports and dataset operations from the shell.
package main

func main() {
	Execute()
}
