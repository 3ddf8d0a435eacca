// Package config provides server configuration for the game room server.
//
// Configuration Format:
//
// An optional YAML file overlays the defaults returned by Default. Any field
// left out keeps its default. ${VAR} references are expanded from the
// environment before parsing.
//
//	server:
//	  host: 0.0.0.0
//	  port: 8080
//	  shutdown_timeout: 10s
//	  allowed_origins: ["https://play.example.com"]
//	rooms:
//	  max_members: 8
//	  idle_ttl: 10m
//	  cleanup_interval: 1m
//	websocket:
//	  send_buffer: 64
//	  max_message_size: 4096
//	  echo_to_sender: true
//	log:
//	  level: info
//	  development: false
//
// Command line flags take precedence over the file; see the gameroom
// command.
//
// Usage:
//
//	cfg, err := config.Load("gameroom.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
package config
