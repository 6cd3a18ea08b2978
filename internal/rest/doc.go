// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keymaster.
//
// go-keymaster is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rest exposes the signing and public key operations over HTTP.
//
// Routes:
//
//	POST /api/v1/sign        sign a message with a derived key
//	POST /api/v1/pubkey      return the compressed public key for a path
//	POST /api/v1/verify      check a secp256k1 signature against a public key
//	GET  /api/v1/audit       recent audit events (when auditing is enabled)
//	GET  /api/v1/version     build information
//	GET  /health             aggregate health
//	GET  /health/live        liveness probe
//	GET  /health/ready       readiness probe
//	GET  /health/startup     startup probe
//	GET  /metrics            Prometheus metrics (when enabled)
//
// No route accepts or returns seed or private key material. Passwords
// travel in the request body and never reach a log line.
package rest
