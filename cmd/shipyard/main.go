// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

package main

import "go.opendefense.cloud/shipyard/cmd/shipyard/cmd"

func main() {
	cmd.Execute()
}
