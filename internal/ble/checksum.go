package ble

import "pcapscope/internal/models"

const crc8Poly = 0x07

// Sum is the byte sum modulo 256.
func Sum(data []byte) uint8 {
	var s uint8
	for _, b := range data {
		s += b
	}
	return s
}

// XOR folds every byte with exclusive or.
func XOR(data []byte) uint8 {
	var x uint8
	for _, b := range data {
		x ^= b
	}
	return x
}

// CRC8 is the plain CRC-8 with polynomial 0x07, zero init and no
// reflection.
func CRC8(data []byte) uint8 {
	var crc uint8
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ crc8Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Checksums computes all three digests of a reassembled payload.
func Checksums(data []byte) models.Checksums {
	return models.Checksums{Sum: Sum(data), XOR: XOR(data), CRC8: CRC8(data)}
}
