// Package avconv
// Implements the avpack command line: remux to MP4 or decode to raw picture planes.
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package avconv

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avbuf"
	"github.com/teocci/go-avpack/av/avutil"
	"github.com/teocci/go-avpack/decode"
	"github.com/teocci/go-avpack/format"
	"github.com/teocci/go-avpack/remux"
	"github.com/teocci/go-avpack/transform"
)

var log = logrus.WithField("pkg", "avconv")

// RandomInput names a generated yuv420p input, sized by -s.
const RandomInput = "random"

var defaultRandomSize = av.Size{Width: 64, Height: 48}

// Option holds parsed command line arguments. Size and PixFmt given before -i
// describe the input, after -i they select the output picture.
type Option struct {
	Input   string
	Output  string
	Format  string
	Verbose bool

	InSize    av.Size
	InPixFmt  string
	OutSize   av.Size
	OutPixFmt string
}

func ParseCmdline(args []string) (opt Option, err error) {
	flagI := false
	flagF := false
	flagS := false
	flagPF := false
	seenI := false

	for _, arg := range args {
		switch arg {
		case "-i":
			flagI = true

		case "-f":
			flagF = true

		case "-s":
			flagS = true

		case "-pix_fmt":
			flagPF = true

		case "-v":
			opt.Verbose = true

		default:
			switch {
			case flagI:
				flagI = false
				seenI = true
				opt.Input = arg

			case flagF:
				flagF = false
				opt.Format = arg

			case flagS:
				flagS = false
				var size av.Size
				if size, err = av.ParseSize(arg); err != nil {
					err = av.E(av.InvalidResolution, "avconv", err)
					return
				}
				if seenI {
					opt.OutSize = size
				} else {
					opt.InSize = size
				}

			case flagPF:
				flagPF = false
				if seenI {
					opt.OutPixFmt = arg
				} else {
					opt.InPixFmt = arg
				}

			default:
				opt.Output = arg
			}
		}
	}

	if opt.Input == "" {
		err = fmt.Errorf("avconv: input file not specified")
		return
	}
	if opt.Output == "" {
		err = fmt.Errorf("avconv: output file not specified")
		return
	}
	return
}

func ConvertCmdline(args []string) (err error) {
	var opt Option
	if opt, err = ParseCmdline(args); err != nil {
		return
	}
	return Convert(context.Background(), opt)
}

// Convert remuxes when the output ends in .mp4 and decodes the last picture otherwise.
// Without -f the input format follows the input file extension, then probing.
func Convert(ctx context.Context, opt Option) (err error) {
	if opt.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	var in *avbuf.Region
	if in, err = readInput(&opt); err != nil {
		return
	}
	defer in.Release()

	if opt.Format == "" {
		format.RegisterAll()
		if h, ok := avutil.DefaultHandlers.FindByExt(opt.Input); ok {
			opt.Format = h.Name
		}
	}

	var out []byte
	if strings.HasSuffix(strings.ToLower(opt.Output), ".mp4") {
		var r *avbuf.Region
		if r, err = remux.RemuxContext(ctx, in, remux.Options{Format: opt.Format}); err != nil {
			return
		}
		out = r.Bytes()
	} else {
		var pic *av.Picture
		if pic, err = decodePicture(ctx, in, opt); err != nil {
			return
		}
		out = pic.Bytes()
		if opt.Verbose {
			fmt.Println(opt.Input, "->", pic.Format, pic.Width, pic.Height)
		}
	}

	if err = writeOutput(opt.Output, out); err != nil {
		return
	}
	log.WithFields(logrus.Fields{
		"input":  opt.Input,
		"output": opt.Output,
		"bytes":  len(out),
	}).Debug("converted")
	return
}

func readInput(opt *Option) (in *avbuf.Region, err error) {
	switch opt.Input {
	case RandomInput:
		size := opt.InSize
		if size.IsZero() {
			size = defaultRandomSize
		}
		var pic *av.Picture
		if pic, err = av.RandomPicture(av.PixFmtYUV420P, size.Width, size.Height, 1); err != nil {
			return
		}
		opt.Format = "rawvideo"
		opt.InSize = size
		opt.InPixFmt = av.PixFmtYUV420P.String()
		return avbuf.NewRegion(pic.Bytes()), nil

	case "-":
		return avbuf.ReadRegion(os.Stdin)
	}

	var f *os.File
	if f, err = os.Open(opt.Input); err != nil {
		err = av.E(av.IOError, "avconv", err)
		return
	}
	defer f.Close()
	if in, err = avbuf.ReadRegion(f); err != nil {
		err = av.E(av.IOError, "avconv", err)
	}
	return
}

func decodePicture(ctx context.Context, in *avbuf.Region, opt Option) (pic *av.Picture, err error) {
	opts := decode.Options{
		Resolution:  opt.InSize,
		PixelFormat: opt.InPixFmt,
		Format:      opt.Format,
	}
	if pic, err = decode.DecodeContext(ctx, in, opts); err != nil {
		return
	}
	if opt.OutSize.IsZero() && opt.OutPixFmt == "" {
		return
	}

	w, h, pf := pic.Width, pic.Height, pic.Format
	if !opt.OutSize.IsZero() {
		w, h = opt.OutSize.Width, opt.OutSize.Height
	}
	if opt.OutPixFmt != "" {
		if pf, err = av.FindPixelFormat(opt.OutPixFmt); err != nil {
			err = av.E(av.ConversionUnsupported, "avconv", err)
			return
		}
	}
	return transform.Transform(pic, w, h, pf)
}

func writeOutput(name string, b []byte) (err error) {
	var w io.Writer = os.Stdout
	if name != "-" {
		var f *os.File
		if f, err = os.Create(name); err != nil {
			return av.E(av.IOError, "avconv", err)
		}
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = av.E(av.IOError, "avconv", cerr)
			}
		}()
		w = f
	}
	if _, err = w.Write(b); err != nil {
		err = av.E(av.IOError, "avconv", err)
	}
	return
}
