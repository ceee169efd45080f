// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// gen-credentials prints a random device key (for INGESTGW_GLOBAL_KEYS)
// and an HS256 JWT secret (for internal/auth.Config.JWTSecret), the
// shared-secret credentials this gateway's machine producers authenticate
// with.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

func randomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func main() {
	deviceKey, err := randomSecret(32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
	jwtSecret, err := randomSecret(32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "INGESTGW_GLOBAL_KEYS=%s\nINGESTGW_JWT_SECRET=%s\n", deviceKey, jwtSecret)
}
