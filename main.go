package main

import "opsdash/internal/app"

func main() {
	app.Main()
}
