/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	releaseVersion = "0.1.0"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()
	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
