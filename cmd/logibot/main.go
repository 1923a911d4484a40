// Command logibot runs the logistics chat assistant.
package main

func main() {
	Execute()
}
