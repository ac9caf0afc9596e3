// Package config loads config.yaml for Rail Logic Core.
//
// Load reads the file over built-in defaults, applies RAILLOGIC_*
// environment overrides and runs Validate, which reports every problem
// at once. Sections:
//
//	site          layout id and name (the id tags logs and telemetry)
//	database      SQLite file holding the layout and persisted loco state
//	mqtt          broker link to the command station gateways
//	api           HTTP listener, TLS, CORS
//	websocket     hub limits
//	influxdb      optional telemetry
//	logging       level, format, output
//	security      JWT secret and operators (argon2id hashes)
//	interlocking  dispatcher timings and automode policy
//	layout        seed file imported into an empty database
//	control       command stations and their health window
//
// Secrets belong in the environment (RAILLOGIC_JWT_SECRET,
// RAILLOGIC_MQTT_PASSWORD, RAILLOGIC_INFLUXDB_TOKEN), not in the file.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	tick := cfg.Interlocking.GetTickInterval()
package config
