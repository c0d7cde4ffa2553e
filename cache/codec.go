package cache

import (
	"errors"
	"reflect"

	"github.com/ugorji/go/codec"
)

// Codec 对象与缓存中字节的转换
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, dest interface{}) error
}

var msgpackHandle = &codec.MsgpackHandle{}

func init() {
	msgpackHandle.MapType = reflect.TypeOf(map[string]interface{}(nil))
}

// MsgPack 使用msgpack编码
var MsgPack Codec = msgPackCodec{}

type msgPackCodec struct{}

// Encode encode data to bytes use msgpack
func (msgPackCodec) Encode(data interface{}) (bytes []byte, err error) {
	enc := codec.NewEncoderBytes(&bytes, msgpackHandle)
	err = enc.Encode(data)
	return
}

// Decode decode bytes to dest use msgpack
func (msgPackCodec) Decode(bytes []byte, dest interface{}) error {
	if len(bytes) == 0 {
		return errors.New("nil bytes to decode")
	}
	dec := codec.NewDecoderBytes(bytes, msgpackHandle)
	return dec.Decode(dest)
}
