// cmd/shardmap/main.go
package main

import "shardmap/internal/app"

func main() { app.Main() }
