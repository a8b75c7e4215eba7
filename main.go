package main

import "jiratriage/internal/app"

func main() {
	app.Main()
}
