package main

func main() {
	handleErr(setupConfig())
	Execute()
}
