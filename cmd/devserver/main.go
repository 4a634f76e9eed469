// Command devserver runs the webhook relay locally with a SQLite session
// store and static credentials.
package main

func main() {
	Execute()
}
