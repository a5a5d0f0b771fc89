// Package main
// Created by RTT.
// Author: teocci@yandex.com on 2023-Apr-03
// Command avpack remuxes video into MP4 or decodes its last picture.
//
//	avpack [-f fmt] [-s WxH] [-pix_fmt name] -i input [-s WxH] [-pix_fmt name] [-v] output
package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/teocci/go-avpack/av/avconv"
)

func main() {
	if err := avconv.ConvertCmdline(os.Args[1:]); err != nil {
		logrus.WithError(err).Fatal("avpack failed")
	}
}
