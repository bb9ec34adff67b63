package main

import "github.com/oshokin/rpm-packager/cmd/rpm-packager/cmd"

func main() {
	cmd.Execute()
}
