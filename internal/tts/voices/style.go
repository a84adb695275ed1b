package voices

// StyleVector averages the embedding's frames column by column into the
// 256-value style input of the model. Embeddings of any other length fall
// back to their first values, zero-padded to StyleDim.
func StyleVector(embedding []float32) []float32 {
	style := make([]float32, StyleDim)

	if len(embedding) != EmbeddingLen {
		copy(style, embedding)

		return style
	}

	sums := make([]float64, StyleDim)

	for frame := range EmbeddingFrames {
		row := embedding[frame*StyleDim : (frame+1)*StyleDim]
		for column, value := range row {
			sums[column] += float64(value)
		}
	}

	for column, sum := range sums {
		style[column] = float32(sum / EmbeddingFrames)
	}

	return style
}
