// Package config loads the relay's YAML configuration.
//
// A config file is optional. Load starts from Default, overlays whatever the
// file sets, and expands ${VAR} references from the environment before
// parsing, so secrets such as the ngrok authtoken can stay out of the file:
//
//	server:
//	  addr: 0.0.0.0:8080
//	  outbound_queue_size: 512
//	ngrok:
//	  enabled: true
//	  authtoken: ${NGROK_AUTHTOKEN}
//
// Command-line flags are applied on top by the caller, then Validate runs.
package config
