package embedding

var (
	EncodeVectorForTest = encodeVector
	DecodeVectorForTest = decodeVector
	CacheKeyForTest     = cacheKey
	RetryDelayForTest   = retryDelay
)
