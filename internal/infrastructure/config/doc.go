// Package config loads the gateway's YAML configuration.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// CZONEGW_* environment variables. Validate runs last and reports every
// problem at once.
//
// Durations are stored in the units operators write them in (seconds for
// bus and snapshot timings, milliseconds for config_service.write_delay);
// use the Get* accessors to obtain time.Duration values.
//
// Broker passwords and InfluxDB tokens belong in the environment
// (CZONEGW_BUS_PASSWORD, CZONEGW_INFLUXDB_TOKEN), not in the file.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	proxyDelay := cfg.GetRetryDelay()
package config
