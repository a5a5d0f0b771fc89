// Package av
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-14
package av

import (
	"fmt"
	"math"
	"math/big"
)

// Rational is a fraction used for time bases.
type Rational struct {
	Num int
	Den int
}

func NewRational(num, den int) Rational {
	return Rational{Num: num, Den: den}
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

func (r Rational) IsValid() bool {
	return r.Num > 0 && r.Den > 0
}

// Rounding selects how Rescale resolves inexact results.
type Rounding int

const (
	RoundZero    Rounding = 0 // round toward zero
	RoundInf     Rounding = 1 // round away from zero
	RoundDown    Rounding = 2 // round toward -infinity
	RoundUp      Rounding = 3 // round toward +infinity
	RoundNearInf Rounding = 5 // round to nearest, halfway cases away from zero

	// RoundPassMinMax leaves math.MinInt64 and math.MaxInt64 untouched, so NoPTS survives a rescale.
	RoundPassMinMax Rounding = 8192
)

// RescaleRnd computes a*b/c with the given rounding, without intermediate overflow.
func RescaleRnd(a, b, c int64, rnd Rounding) int64 {
	if rnd&RoundPassMinMax != 0 {
		if a == math.MinInt64 || a == math.MaxInt64 {
			return a
		}
		rnd &^= RoundPassMinMax
	}
	if c <= 0 || b < 0 || a == math.MinInt64 {
		return math.MinInt64
	}
	if a < 0 {
		// mirror the rounding direction for negative input
		switch rnd {
		case RoundDown:
			rnd = RoundUp
		case RoundUp:
			rnd = RoundDown
		}
		return -RescaleRnd(-a, b, c, rnd)
	}

	n := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	d := big.NewInt(c)
	switch rnd {
	case RoundNearInf:
		n.Add(n, new(big.Int).Rsh(d, 1))
	case RoundInf, RoundUp:
		n.Add(n, new(big.Int).Sub(d, big.NewInt(1)))
	}
	n.Quo(n, d)
	if !n.IsInt64() {
		return math.MinInt64
	}
	return n.Int64()
}

// Rescale converts a from time base bq to time base cq, rounding to nearest.
func Rescale(a int64, bq, cq Rational) int64 {
	return RescaleQRnd(a, bq, cq, RoundNearInf)
}

// RescaleQRnd converts a from time base bq to time base cq with the given rounding.
func RescaleQRnd(a int64, bq, cq Rational, rnd Rounding) int64 {
	b := int64(bq.Num) * int64(cq.Den)
	c := int64(cq.Num) * int64(bq.Den)
	return RescaleRnd(a, b, c, rnd)
}
