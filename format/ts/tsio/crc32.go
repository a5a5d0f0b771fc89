// Package tsio
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package tsio

// MPEG-2 CRC32, polynomial 0x04C11DB7 without reflection.
var ieeeCrc32Tbl [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		ieeeCrc32Tbl[i] = crc
	}
}

// CalcCRC32 continues crc over data. A section followed by its own CRC yields 0.
func CalcCRC32(crc uint32, data []byte) uint32 {
	for _, b := range data {
		crc = (crc << 8) ^ ieeeCrc32Tbl[byte(crc>>24)^b]
	}
	return crc
}
