package idl

// ErrCoded is implemented by every storage/meta response that carries a
// server-assigned error code, letting the Operation Executor classify a
// reply (spec §4.6) without knowing each response's concrete shape.
type ErrCoded interface {
	ErrCode() int32
}

func (q *QueryConfigResponse) ErrCode() int32   { return q.Status }
func (q *GetResponse) ErrCode() int32           { return q.Err }
func (q *PutResponse) ErrCode() int32           { return q.Err }
func (q *RemoveResponse) ErrCode() int32        { return q.Err }
func (q *ExistResponse) ErrCode() int32         { return q.Err }
func (q *TTLResponse) ErrCode() int32           { return q.Err }
func (q *MultiGetResponse) ErrCode() int32      { return q.Err }
func (q *MultiPutResponse) ErrCode() int32      { return q.Err }
func (q *MultiRemoveResponse) ErrCode() int32   { return q.Err }
func (q *SortKeyCountResponse) ErrCode() int32  { return q.Err }
func (q *ScanResponse) ErrCode() int32          { return q.Err }
func (q *ScanCancelResponse) ErrCode() int32    { return q.Err }
