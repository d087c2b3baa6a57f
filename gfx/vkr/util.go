// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"unsafe"
)

// SliceUint32 reslices bytes into a uint32, that is used
// to submit vulkan shaders for processing
func SliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

func safeString(s string) string {
	return fmt.Sprintf("%s\x00", s)
}

func safeStrings(sgs []string) []string {
	safe := []string{}
	for _, s := range sgs {
		safe = append(safe, safeString(s))
	}
	return safe
}
