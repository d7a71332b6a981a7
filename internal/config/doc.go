// Package config loads the rbl configuration from a YAML file.
//
// Configuration is structured as follows:
//
//	socket:
//	  path: /var/run/rbld.socket    # Unix domain socket of rbld
//	lookup:
//	  timeout: 10                   # reply timeout, whole seconds
//	  early_exit: false             # stop at the first hit
//	  resolvers: ["1.1.1.1:53"]     # empty: /etc/resolv.conf
//	lists:
//	  - domain: zen.spamhaus.org
//	    type: mask                  # normal, match or mask
//	    data: "0.0.0.2"
//	    user_data: {score: 5}
//
// Load configuration using the default path (~/.rbl/config.yaml):
//
//	cfg, err := config.New().Load()
//
// Unknown keys are rejected. Validation errors are collected and returned
// together, wrapped in ErrInvalidConfig. A missing file is not an error:
// Default is returned instead, with no lists configured.
package config
