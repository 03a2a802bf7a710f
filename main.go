package main

import (
	"nudfans-backend/cmd"

	_ "go.uber.org/automaxprocs"
)

// @title Nudfans API
// @version 1.0
// @description Creator subscription platform: profiles, gated posts, checkout, tips, messaging.
// @host localhost:8080
// @BasePath /
// @SecurityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter the JWT with the Bearer prefix: Bearer <JWT>
func main() {
	cmd.Execute()
}
