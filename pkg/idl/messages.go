package idl

// KeyValue is a single sort-key/value pair within one hashKey's partition,
// as returned by multi_get and scan (spec §6 storage protocol).
type KeyValue struct {
	SortKey         []byte
	Value           []byte
	ExpireTsSeconds int32
}

func (kv *KeyValue) encode(w *Writer) {
	w.Binary(kv.SortKey)
	w.Binary(kv.Value)
	w.I32(kv.ExpireTsSeconds)
}

func decodeKeyValue(r *Reader) KeyValue {
	var kv KeyValue
	kv.SortKey = r.Binary()
	kv.Value = r.Binary()
	kv.ExpireTsSeconds = r.I32()
	return kv
}

// FullKeyValue additionally carries the hashKey, used by unordered scans
// that span the full composite key space of a partition.
type FullKeyValue struct {
	HashKey         []byte
	SortKey         []byte
	Value           []byte
	ExpireTsSeconds int32
}

func decodeFullKeyValue(r *Reader) FullKeyValue {
	var kv FullKeyValue
	kv.HashKey = r.Binary()
	kv.SortKey = r.Binary()
	kv.Value = r.Binary()
	kv.ExpireTsSeconds = r.I32()
	return kv
}

// PartitionConfig is one partition's entry in a table's partition map
// (spec §3/§6: per-partition primary endpoint + ballot).
type PartitionConfig struct {
	Index   int32
	Primary string
	Ballot  int64
}

func decodePartitionConfig(r *Reader) PartitionConfig {
	var p PartitionConfig
	p.Index = r.I32()
	p.Primary = r.String()
	p.Ballot = r.I64()
	return p
}

// --- meta protocol ---------------------------------------------------

type QueryConfigRequest struct {
	TableName string
}

func (q *QueryConfigRequest) Name() string { return "RPC_CM_QUERY_PARTITION_CONFIG_BY_INDEX" }
func (q *QueryConfigRequest) Encode(w *Writer) { w.String(q.TableName) }
func (q *QueryConfigRequest) NewResponse() Response { return &QueryConfigResponse{} }

// QueryConfigResponse's Status encodes "not primary -> try HintedPrimary"
// per spec §6; Status == 0 is success.
type QueryConfigResponse struct {
	Status         int32
	TableID        int32
	PartitionCount int32
	Partitions     []PartitionConfig
	HintedPrimary  string
}

func (q *QueryConfigResponse) Decode(r *Reader) error {
	q.Status = r.I32()
	q.TableID = r.I32()
	q.PartitionCount = r.I32()
	n := r.I32()
	q.Partitions = make([]PartitionConfig, 0, n)
	for i := int32(0); i < n && r.Err() == nil; i++ {
		q.Partitions = append(q.Partitions, decodePartitionConfig(r))
	}
	q.HintedPrimary = r.String()
	return r.Err()
}

// --- storage protocol --------------------------------------------------

type GetRequest struct{ Key []byte }

func (q *GetRequest) Name() string         { return "RPC_RRDB_RRDB_GET" }
func (q *GetRequest) Encode(w *Writer)     { w.Binary(q.Key) }
func (q *GetRequest) NewResponse() Response { return &GetResponse{} }

type GetResponse struct {
	Err             int32
	Value           []byte
	ExpireTsSeconds int32
}

func (q *GetResponse) Decode(r *Reader) error {
	q.Err = r.I32()
	q.Value = r.Binary()
	q.ExpireTsSeconds = r.I32()
	return r.Err()
}

type PutRequest struct {
	Key             []byte
	Value           []byte
	ExpireTsSeconds int32
}

func (q *PutRequest) Name() string { return "RPC_RRDB_RRDB_PUT" }
func (q *PutRequest) Encode(w *Writer) {
	w.Binary(q.Key)
	w.Binary(q.Value)
	w.I32(q.ExpireTsSeconds)
}
func (q *PutRequest) NewResponse() Response { return &PutResponse{} }

type PutResponse struct{ Err int32 }

func (q *PutResponse) Decode(r *Reader) error {
	q.Err = r.I32()
	return r.Err()
}

type RemoveRequest struct{ Key []byte }

func (q *RemoveRequest) Name() string         { return "RPC_RRDB_RRDB_REMOVE" }
func (q *RemoveRequest) Encode(w *Writer)     { w.Binary(q.Key) }
func (q *RemoveRequest) NewResponse() Response { return &RemoveResponse{} }

type RemoveResponse struct{ Err int32 }

func (q *RemoveResponse) Decode(r *Reader) error {
	q.Err = r.I32()
	return r.Err()
}

type ExistRequest struct{ Key []byte }

func (q *ExistRequest) Name() string         { return "RPC_RRDB_RRDB_EXIST" }
func (q *ExistRequest) Encode(w *Writer)     { w.Binary(q.Key) }
func (q *ExistRequest) NewResponse() Response { return &ExistResponse{} }

type ExistResponse struct{ Err int32 }

func (q *ExistResponse) Decode(r *Reader) error {
	q.Err = r.I32()
	return r.Err()
}

type TTLRequest struct{ Key []byte }

func (q *TTLRequest) Name() string         { return "RPC_RRDB_RRDB_TTL" }
func (q *TTLRequest) Encode(w *Writer)     { w.Binary(q.Key) }
func (q *TTLRequest) NewResponse() Response { return &TTLResponse{} }

type TTLResponse struct {
	Err        int32
	TTLSeconds int32
}

func (q *TTLResponse) Decode(r *Reader) error {
	q.Err = r.I32()
	q.TTLSeconds = r.I32()
	return r.Err()
}

type MultiGetRequest struct {
	HashKey        []byte
	SortKeys       [][]byte
	MaxFetchCount  int32
	MaxFetchSize   int32
	StartSortKey   []byte
	StopSortKey    []byte
	StartInclusive bool
	StopInclusive  bool
	NoValue        bool
}

func (q *MultiGetRequest) Name() string { return "RPC_RRDB_RRDB_MULTI_GET" }
func (q *MultiGetRequest) Encode(w *Writer) {
	w.Binary(q.HashKey)
	w.BinarySlice(q.SortKeys)
	w.I32(q.MaxFetchCount)
	w.I32(q.MaxFetchSize)
	w.Binary(q.StartSortKey)
	w.Binary(q.StopSortKey)
	w.Bool(q.StartInclusive)
	w.Bool(q.StopInclusive)
	w.Bool(q.NoValue)
}
func (q *MultiGetRequest) NewResponse() Response { return &MultiGetResponse{} }

type MultiGetResponse struct {
	Err int32
	Kvs []KeyValue
}

func (q *MultiGetResponse) Decode(r *Reader) error {
	q.Err = r.I32()
	n := r.I32()
	q.Kvs = make([]KeyValue, 0, n)
	for i := int32(0); i < n && r.Err() == nil; i++ {
		q.Kvs = append(q.Kvs, decodeKeyValue(r))
	}
	return r.Err()
}

type MultiPutRequest struct {
	HashKey         []byte
	Kvs             []KeyValue
	ExpireTsSeconds int32
}

func (q *MultiPutRequest) Name() string { return "RPC_RRDB_RRDB_MULTI_PUT" }
func (q *MultiPutRequest) Encode(w *Writer) {
	w.Binary(q.HashKey)
	w.I32(int32(len(q.Kvs)))
	for i := range q.Kvs {
		q.Kvs[i].encode(w)
	}
	w.I32(q.ExpireTsSeconds)
}
func (q *MultiPutRequest) NewResponse() Response { return &MultiPutResponse{} }

type MultiPutResponse struct{ Err int32 }

func (q *MultiPutResponse) Decode(r *Reader) error {
	q.Err = r.I32()
	return r.Err()
}

type MultiRemoveRequest struct {
	HashKey  []byte
	SortKeys [][]byte
}

func (q *MultiRemoveRequest) Name() string { return "RPC_RRDB_RRDB_MULTI_REMOVE" }
func (q *MultiRemoveRequest) Encode(w *Writer) {
	w.Binary(q.HashKey)
	w.BinarySlice(q.SortKeys)
}
func (q *MultiRemoveRequest) NewResponse() Response { return &MultiRemoveResponse{} }

type MultiRemoveResponse struct {
	Err   int32
	Count int64
}

func (q *MultiRemoveResponse) Decode(r *Reader) error {
	q.Err = r.I32()
	q.Count = r.I64()
	return r.Err()
}

type SortKeyCountRequest struct{ HashKey []byte }

func (q *SortKeyCountRequest) Name() string         { return "RPC_RRDB_RRDB_SORTKEY_COUNT" }
func (q *SortKeyCountRequest) Encode(w *Writer)     { w.Binary(q.HashKey) }
func (q *SortKeyCountRequest) NewResponse() Response { return &SortKeyCountResponse{} }

type SortKeyCountResponse struct {
	Err   int32
	Count int64
}

func (q *SortKeyCountResponse) Decode(r *Reader) error {
	q.Err = r.I32()
	q.Count = r.I64()
	return r.Err()
}

// ScanRequest covers both get_scanner's initial request and, when
// ContextID is set, a scan_continue (spec §4.8/§6).
type ScanRequest struct {
	PartitionIndex       int32
	ContextID            int64
	StartKey             []byte
	StopKey              []byte
	StartInclusive       bool
	StopInclusive        bool
	BatchSize            int32
	NoValue              bool
	StartExpireTsSeconds int32
	StopExpireTsSeconds  int32
}

func (q *ScanRequest) Name() string { return "RPC_RRDB_RRDB_SCAN" }
func (q *ScanRequest) Encode(w *Writer) {
	w.I32(q.PartitionIndex)
	w.I64(q.ContextID)
	w.Binary(q.StartKey)
	w.Binary(q.StopKey)
	w.Bool(q.StartInclusive)
	w.Bool(q.StopInclusive)
	w.I32(q.BatchSize)
	w.Bool(q.NoValue)
	w.I32(q.StartExpireTsSeconds)
	w.I32(q.StopExpireTsSeconds)
}
func (q *ScanRequest) NewResponse() Response { return &ScanResponse{} }

type ScanResponse struct {
	Err       int32
	Kvs       []FullKeyValue
	ContextID int64
}

func (q *ScanResponse) Decode(r *Reader) error {
	q.Err = r.I32()
	n := r.I32()
	q.Kvs = make([]FullKeyValue, 0, n)
	for i := int32(0); i < n && r.Err() == nil; i++ {
		q.Kvs = append(q.Kvs, decodeFullKeyValue(r))
	}
	q.ContextID = r.I64()
	return r.Err()
}

type ScanCancelRequest struct {
	PartitionIndex int32
	ContextID      int64
}

func (q *ScanCancelRequest) Name() string { return "RPC_RRDB_RRDB_CLEAR_SCANNER" }
func (q *ScanCancelRequest) Encode(w *Writer) {
	w.I32(q.PartitionIndex)
	w.I64(q.ContextID)
}
func (q *ScanCancelRequest) NewResponse() Response { return &ScanCancelResponse{} }

type ScanCancelResponse struct{ Err int32 }

func (q *ScanCancelResponse) Decode(r *Reader) error {
	q.Err = r.I32()
	return r.Err()
}
