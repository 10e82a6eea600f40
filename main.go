package main

import "example.com/safegear/services/ppe/cmd"

func main() {
	cmd.Execute()
}
