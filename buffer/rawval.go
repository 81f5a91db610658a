package buffer

import (
	"github.com/andreheringer/LocustDB/types"
	"github.com/andreheringer/LocustDB/value"
)

// RawValAt reinterprets row i of b as the untyped value.RawVal the
// httpapi/sqlparser boundary and the coordinator's cross-partition
// result merge deal in. It is the inverse of the store package's
// columnFromRawVals: where ingest widens RawVal rows into typed
// columns, this narrows a typed buffer's row back into one.
func (b *Buffer) RawValAt(i int) value.RawVal {
	if b.Encoding.Nullable() && !b.IsValid(i) {
		return value.Null()
	}
	switch b.Encoding.NonNullable() {
	case types.U8:
		return value.Int(int64(b.U8[i]))
	case types.U16:
		return value.Int(int64(b.U16[i]))
	case types.U32:
		return value.Int(int64(b.U32[i]))
	case types.U64:
		return value.Int(int64(b.U64[i]))
	case types.I64, types.ScalarI64:
		return value.Int(b.I64[i])
	case types.F64:
		return value.Float(b.F64[i])
	case types.Str, types.OptStr, types.ScalarStr:
		return value.Str(b.StrAt(i))
	case types.USize:
		return value.Int(int64(b.USize[i]))
	default:
		return value.Null()
	}
}
