package main

import (
	"cmp"
	"net/http"
	"os"
	"time"
)

func main() {
	port := cmp.Or(os.Getenv("MIMIC_PORT"), "8080")
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://localhost:" + port + "/system/status")
	if err != nil || resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
